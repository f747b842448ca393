package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"
)

// ExampleServer_Handler mounts the API on a test server and checks health.
func ExampleServer_Handler() {
	server, err := NewServer(&stubService{}, zap.NewNop(), &Config{Host: "localhost", Port: 8000})
	if err != nil {
		panic(err)
	}

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	fmt.Println(resp.StatusCode)
	// Output: 200
}
