package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogProb       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

type inferenceResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []segment `json:"segments"`
	Duration float64   `json:"duration"`
}

func inferenceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	err := r.ParseMultipartForm(32 << 20) // 32 MB
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	model := r.FormValue("model")
	language := r.FormValue("language")
	prompt := r.FormValue("prompt")
	responseFormat := r.FormValue("response_format")

	// Get audio file
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	// 16 kHz mono 16-bit WAV with a 44 byte header
	duration := float64(len(audioData)-44) / 32000.0
	if duration < 0 {
		duration = 0
	}

	log.Printf("INFERENCE REQUEST: model=%s language=%s format=%s prompt=%q file=%s (%d bytes, %.2fs)",
		model, language, responseFormat, prompt, header.Filename, len(audioData), duration)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	// Split the window into fake one second sentences so the split
	// point logic in the worker has something to chew on.
	var segments []segment
	var pos float64
	for i := 0; pos < duration; i++ {
		end := pos + 1.0
		if end > duration {
			end = duration
		}
		segments = append(segments, segment{
			ID:               i,
			Start:            pos,
			End:              end,
			Text:             fmt.Sprintf("test sentence %d.", i+1),
			AvgLogProb:       -0.2,
			CompressionRatio: 1.0,
			NoSpeechProb:     0.01,
		})
		pos = end
	}

	text := ""
	for i, seg := range segments {
		if i > 0 {
			text += " "
		}
		text += seg.Text
	}

	response := inferenceResponse{
		Text:     text,
		Language: language,
		Segments: segments,
		Duration: duration,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("INFERENCE RESPONSE SENT: %d segments", len(segments))
}

func main() {
	http.HandleFunc("/inference", inferenceHandler)

	port := ":8080"
	log.Printf("Test recognition server starting on port %s", port)
	log.Printf("Endpoint: http://localhost%s/inference", port)
	log.Println("Update your config to use: http://localhost:8080/inference")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
