// Package main runs a demo WebSocket client for plan events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a minimal scenario and plan it
	scBody := []byte(`{"name":"ws-demo","nodes":["1","2"],"edges":[{"from":"1","to":"2","lengthM":100,"speedMin":5,"speedMax":15}],"fleet":[{"id":"AC1","role":"departure","origin":"1","destination":"2"}],"params":{"separationM":5}}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/scenarios", bytes.NewReader(scBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var sc struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sc); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Scenario ID: %s", sc.ID)

	// Connect WS before planning so the terminal event is observable
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Plan the scenario
	planBody, _ := json.Marshal(map[string]any{"scenarioId": sc.ID})
	planReq, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader(planBody))
	planReq.Header.Set("Content-Type", "application/json")
	planReq.Header.Set("X-Tenant-Id", "t_demo")
	planReq.Header.Set("X-Role", "admin")
	planResp, err := http.DefaultClient.Do(planReq)
	if err != nil {
		log.Fatal(err)
	}
	var plan struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(planResp.Body).Decode(&plan); err != nil {
		log.Fatal(err)
	}
	_ = planResp.Body.Close()
	log.Printf("Plan %s: %s", plan.ID, plan.Status)

	// Subscribe to the plan's event stream
	pl, _ := json.Marshal(map[string]any{"planId": plan.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
