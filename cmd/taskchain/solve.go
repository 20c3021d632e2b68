package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serviceAddr string
	solveSecret string
)

var solveCmd = &cobra.Command{
	Use:   "solve <start-url>",
	Short: "Ask a running taskchain service to start a chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&serviceAddr, "addr", "http://127.0.0.1:7860", "taskchain service address")
	solveCmd.Flags().StringVar(&solveSecret, "secret", "", "Shared secret of the service")
}

func runSolve(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{
		"url":    args[0],
		"secret": solveSecret,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serviceAddr+"/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("service rejected the request (%d): %s", resp.StatusCode, bytes.TrimSpace(out))
	}
	fmt.Println(string(bytes.TrimSpace(out)))
	return nil
}
