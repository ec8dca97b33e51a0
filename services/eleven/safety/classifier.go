// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package safety classifies shell commands by how destructive they
// look, before anything is executed.
//
// The classification is a coarse static judgment used purely to gate
// interactive consent. It is not a sandbox and it does not prevent a
// consented command from doing damage.
//
// Thread Safety:
//
//	All functions in this package are pure and safe for concurrent use.
package safety

import (
	"regexp"
	"strings"
)

// RiskLevel is the classification of a shell command.
type RiskLevel string

const (
	// RiskSafe covers read-only operations.
	RiskSafe RiskLevel = "SAFE"

	// RiskCaution covers mutating but generally recoverable operations
	// (moves, copies, permission changes, output redirection).
	RiskCaution RiskLevel = "CAUTION"

	// RiskDangerous covers destructive or privilege-escalating
	// operations that require explicit confirmation or --force.
	RiskDangerous RiskLevel = "DANGEROUS"
)

// dangerousPatterns match commands that can destroy data or escalate
// privileges. Checked first: a command matching both lists is DANGEROUS.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-rf\b`),
	regexp.MustCompile(`\bsudo\s+`),
	regexp.MustCompile(`\bkill\s+-9\b`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`\bchmod\s+777\b`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`\bformat\b`),
	regexp.MustCompile(`\bfdisk\b`),
	regexp.MustCompile(`\bdel\s+/f\b`),
	regexp.MustCompile(`\bwget\s+.*\|\s*sh\b`),
	regexp.MustCompile(`\bcurl\s+.*\|\s*sh\b`),
}

// cautionPatterns match write operations that are usually recoverable.
var cautionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\b`),
	regexp.MustCompile(`\bmv\b`),
	regexp.MustCompile(`\bcp\b`),
	regexp.MustCompile(`>`),
	regexp.MustCompile(`\|\s*tee\b`),
	regexp.MustCompile(`\bchmod\b`),
	regexp.MustCompile(`\bchown\b`),
}

// Classify returns the risk level of a shell command.
//
// Description:
//
//	Tests the case-folded command against the dangerous pattern list
//	first, short-circuiting on the first match, then against the
//	caution list. Anything that matches neither, including the empty
//	string, is SAFE.
//
// Inputs:
//
//	command - The raw shell command text.
//
// Outputs:
//
//	RiskLevel - Exactly one of RiskSafe, RiskCaution, RiskDangerous.
func Classify(command string) RiskLevel {
	lower := strings.ToLower(command)

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(lower) {
			return RiskDangerous
		}
	}

	for _, pattern := range cautionPatterns {
		if pattern.MatchString(lower) {
			return RiskCaution
		}
	}

	return RiskSafe
}
