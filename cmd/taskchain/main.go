package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskchain",
	Short: "taskchain - autonomous quiz-solving agent service",
	Long:  `taskchain runs an LLM-driven task chain: given a starting quiz URL it fetches each task, solves it with a fixed tool set and submits answers until the grader stops handing out URLs.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(solveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
