package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Simulador de provider lento para validação manual do gateway: latência e
// taxa de falha configuráveis por env, endpoints /call e /batch no formato
// esperado pelo HTTPProvider.
func main() {
	latency := getenvDurationDefault("PROVIDER_LATENCY", 300*time.Millisecond)
	failRate := getenvFloatDefault("PROVIDER_FAIL_RATE", 0)

	mux := http.NewServeMux()

	mux.HandleFunc("/call", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		time.Sleep(latency)
		if rand.Float64() < failRate {
			http.Error(w, "falha simulada", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": fmt.Sprintf("eco: %s", in.Prompt),
			"meta":    map[string]string{"latency": latency.String()},
		})
		log.Printf("call prompt=%q", in.Prompt)
	})

	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Payloads []struct {
				Prompt string `json:"prompt"`
			} `json:"payloads"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		time.Sleep(latency)
		if rand.Float64() < failRate {
			http.Error(w, "falha simulada", http.StatusInternalServerError)
			return
		}
		responses := make([]map[string]any, len(in.Payloads))
		for i, p := range in.Payloads {
			responses[i] = map[string]any{"content": fmt.Sprintf("eco: %s", p.Prompt)}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"responses": responses})
		log.Printf("batch n=%d", len(in.Payloads))
	})

	addr := ":9000"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Printf("provider-sim em %s (latency=%s failRate=%.2f)", addr, latency, failRate)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
