// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentra-ai/factcheck/services/verifier/config"
	"github.com/agentra-ai/factcheck/services/verifier/observability"
	"github.com/agentra-ai/factcheck/services/verifier/pipeline"
)

var (
	checkURL   string
	checkImage string
	checkAudio string
	checkVideo string
)

var checkCmd = &cobra.Command{
	Use:   "check [claim text]",
	Short: "Verify one claim and print the JSON report",
	Long: `Runs the full verification pipeline once and writes the report to
stdout. The claim comes from the arguments, or from --url, --image, or
--audio when no text is given.`,
	Args: cobra.ArbitraryArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", "", "verify the text of this page")
	checkCmd.Flags().StringVar(&checkImage, "image", "", "verify text recognized in this image")
	checkCmd.Flags().StringVar(&checkAudio, "audio", "", "verify the transcript of this audio file")
	checkCmd.Flags().StringVar(&checkVideo, "video", "", "extract keyframes from this video")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" && checkURL == "" && checkImage == "" && checkAudio == "" {
		return fmt.Errorf("nothing to verify: pass claim text or --url/--image/--audio")
	}

	cfg := config.Load()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// One-shot runs do not persist reports.
	checker, err := buildChecker(cfg, logger, metrics, nil)
	if err != nil {
		return err
	}

	report, err := checker.Run(cmd.Context(), pipeline.Input{
		Text:      text,
		URL:       checkURL,
		ImagePath: checkImage,
		AudioPath: checkAudio,
		VideoPath: checkVideo,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
