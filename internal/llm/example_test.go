package llm_test

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/chronicle/internal/llm"
)

// ExampleCircuitBreaker demonstrates basic usage of the circuit breaker.
func ExampleCircuitBreaker() {
	cb := llm.NewCircuitBreaker()

	result, err := cb.Execute(context.Background(), func() (string, error) {
		return "The tavern falls silent.", nil
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println(result)
	fmt.Println(cb.State())
	// Output:
	// The tavern falls silent.
	// closed
}

func ExampleCircuitBreaker_Metrics() {
	cb := llm.NewCircuitBreakerWithConfig(llm.CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Minute})

	_, _ = cb.Execute(context.Background(), func() (string, error) { return "ok", nil })
	_, _ = cb.Execute(context.Background(), func() (string, error) { return "", fmt.Errorf("boom") })

	m := cb.Metrics()
	fmt.Println(m.TotalRequests, m.TotalSuccesses, m.TotalFailures)
	// Output: 2 1 1
}
