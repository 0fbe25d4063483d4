// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// domainwatchctl is the Job API's CLI client: submit a bulk import,
// kick off processing, and watch a progress bar poll the Job row until
// it completes. Adapted from the source engine's client, which polled
// SessionStats into a cheggaaa/pb progress bar on a ticker; here the
// polling target is a plain REST Job row instead of a GraphQL session.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	pb "github.com/cheggaaa/pb/v3"
)

type job struct {
	ID        uint64 `json:"id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
}

// processResponse mirrors the Job API's POST /jobs/{id}/process body: the
// post-flush job row, plus a sentinel when the call found no unclaimed
// work left (the job is already complete, or every remaining slice was
// already claimed by a concurrent caller).
type processResponse struct {
	Job    *job `json:"job"`
	NoWork bool `json:"no_work,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport(os.Args[2:])
	case "process":
		runProcess(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: domainwatchctl <import|process> [flags]")
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "Job API base URL")
	userID := fs.Uint64("user", 1, "owning user id")
	file := fs.String("file", "-", "path to a newline-delimited list of names, or - for stdin")
	fs.Parse(args)

	names, err := readNames(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read names: %v\n", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "no names to import")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]any{
		"user_id": *userID,
		"kind":    "import",
		"names":   names,
	})

	resp, err := http.Post(*server+"/jobs", "application/json", strings.NewReader(string(body)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var created job
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		fmt.Fprintf(os.Stderr, "unexpected response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created job %d with %d names\n", created.ID, created.Total)
}

// runProcess drives a job to completion without a long-lived worker:
// each POST /jobs/{id}/process call runs exactly one claim+lookup+flush
// cycle server-side, so the client loops the call itself until the
// server reports no work left.
func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "Job API base URL")
	jobID := fs.Uint64("job", 0, "job id to process")
	batch := fs.Int("batch", 0, "override the server's default claim batch size")
	fs.Parse(args)

	if *jobID == 0 {
		fmt.Fprintln(os.Stderr, "-job is required")
		os.Exit(1)
	}

	url := fmt.Sprintf("%s/jobs/%d/process", *server, *jobID)

	bar := pb.Start64(0)
	defer bar.Finish()

	for {
		resp, err := postProcess(url, *batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "process call failed: %v\n", err)
			os.Exit(1)
		}
		bar.SetTotal(int64(resp.Job.Total))
		bar.SetCurrent(int64(resp.Job.Processed))
		if resp.NoWork || resp.Job.Status == "completed" || resp.Job.Status == "failed" {
			fmt.Printf("\njob %d finished: %s (%d errors)\n", resp.Job.ID, resp.Job.Status, resp.Job.Errors)
			return
		}
	}
}

func postProcess(url string, batchSize int) (*processResponse, error) {
	var body io.Reader
	if batchSize > 0 {
		b, err := json.Marshal(map[string]int{"batch_size": batchSize})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	resp, err := http.Post(url, "application/json", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out processResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Job == nil {
		return nil, fmt.Errorf("server returned no job row")
	}
	return &out, nil
}

func readNames(path string) ([]string, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n := strings.TrimSpace(scanner.Text())
		if n != "" {
			names = append(names, n)
		}
	}
	return names, scanner.Err()
}
