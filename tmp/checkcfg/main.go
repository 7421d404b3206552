package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"workdesk/internal/config"
	"workdesk/internal/db"
	"workdesk/internal/engine"
	"workdesk/internal/migrate"
	"workdesk/internal/server"
)

// Quick end-to-end smoke check: boot the API in-process, create a work item,
// print the response.
func main() {
	workspace := "/tmp/workdesk-check"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	e := engine.New(conn, config.Default())
	h, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	body := map[string]any{
		"kind":        "onboarding",
		"client_name": "Smoke Test Client",
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v0/work-items", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "smoke")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)
}
