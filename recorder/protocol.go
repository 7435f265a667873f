// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"strconv"
	"strings"
)

// Commands sent to the peers.
const (
	commandStart       = "start"
	commandStop        = "stop"
	commandGetTasks    = "tasks"
	commandSetTask     = "task"
	commandGetLog      = "getlog"
	commandLoadProfile = "profile"
	commandGetLambdas  = "lambdas"
	commandSetLambda   = "lambda"
)

// Reply prefixes.
const (
	replyFinished = "FIN"
	replyTasks    = "TSK"
	replyLog      = "LOG"
	replyLambdas  = "LMB"
)

// parseLambdas decodes the payload of an LMB reply, "0.5;1;1.5".
// Items that are not numbers are skipped.
func parseLambdas(payload string) []float64 {
	var lambdas []float64
	for item := range strings.SplitSeq(payload, ";") {
		value, err := strconv.ParseFloat(strings.TrimSpace(item), 64)
		if err != nil {
			continue
		}
		lambdas = append(lambdas, value)
	}
	return lambdas
}

// parseTaskDescriptions decodes the payload of a TSK reply,
// "2,Ordered;4,Random", into "2 fixed numbers", "4 randomized numbers".
// Items without a comma are skipped.
func parseTaskDescriptions(payload string) []string {
	var descriptions []string
	for item := range strings.SplitSeq(payload, ";") {
		parts := strings.Split(item, ",")
		if len(parts) < 2 {
			continue
		}
		order := "randomized"
		if parts[1] == "Ordered" {
			order = "fixed"
		}
		descriptions = append(descriptions, parts[0]+" "+order+" numbers")
	}
	return descriptions
}

// lambdaLabel names a lambda index for the task banner: the value
// reported by the peripheral peer, or the index itself when the
// catalog does not cover it.
func lambdaLabel(lambdas []float64, index int) string {
	if index >= 0 && index < len(lambdas) {
		return strconv.FormatFloat(lambdas[index], 'f', -1, 64)
	}
	return strconv.Itoa(index)
}

// taskLabel names an n-back index for the task banner. Indexes past the
// end of the catalog take its last entry.
func taskLabel(descriptions []string, index int) string {
	if len(descriptions) == 0 {
		return "Unknown"
	}
	return descriptions[min(len(descriptions)-1, index)]
}
