// Package main is detectmate-admin: a thin HTTP client for a running
// component's AdminAPI, mirroring the source client's start/stop/status/
// reconfigure subcommands.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	baseURL string
	persist bool
)

func main() {
	root := &cobra.Command{
		Use:   "detectmate-admin",
		Short: "Control a running detectmate component over its AdminAPI",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8000", "AdminAPI base URL")

	root.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the component's engine",
			RunE: func(cmd *cobra.Command, args []string) error {
				return post("/admin/start", nil)
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the component's engine",
			RunE: func(cmd *cobra.Command, args []string) error {
				return post("/admin/stop", nil)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the component's status report",
			RunE: func(cmd *cobra.Command, args []string) error {
				return get("/admin/status")
			},
		},
		reconfigureCmd(),
		&cobra.Command{
			Use:   "shutdown",
			Short: "Request the component's process to exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return post("/admin/shutdown", nil)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func reconfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconfigure <file>",
		Short: "Send a new configuration tree from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var tree map[string]any
			if err := yaml.Unmarshal(data, &tree); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			body := map[string]any{"config": tree, "persist": persist}
			return post("/admin/reconfigure", body)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "write the new configuration to disk")
	return cmd
}

func post(path string, body any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func get(path string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}
