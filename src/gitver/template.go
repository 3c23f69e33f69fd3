package gitver

import (
	"os"
	"strconv"
	"strings"
)

// ResolveTemplate expands placeholders in one toolchain argument.
//
// Supported templates:
//
//	Simple variables (from vars):
//	  {project}          → "Lib9c/Lib9c.csproj"
//	  {configuration}    → "Release"
//	  {output}           → "/abs/out/v200100"
//	  {version}          → "v200100" (configured version name)
//	  {ref}              → "v200100", "main", "0a1b2c3"
//
//	Revision variables (from rev, empty when rev is nil):
//	  {sha}              → "abc1234" (default 7)
//	  {sha:12}           → "abc1234def01" (first 12 chars)
//	  {tag}              → first exact tag at the commit, or ""
//
//	Environment variables:
//	  {env:VAR_NAME}     → value of environment variable
//
// Unknown placeholders pass through unchanged.
func ResolveTemplate(tmpl string, vars map[string]string, rev *Revision) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}

	s := resolveEnvVars(tmpl)

	var full, tag string
	if rev != nil {
		full = rev.Hash.String()
		tag = rev.Tag()
	}
	s = resolveSHA(s, full)
	s = strings.ReplaceAll(s, "{sha}", truncate(full, 7))
	s = strings.ReplaceAll(s, "{tag}", tag)

	for k, v := range vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

// ResolveArgs expands every argument of an argv.
func ResolveArgs(args []string, vars map[string]string, rev *Revision) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = ResolveTemplate(a, vars, rev)
	}
	return out
}

// resolveEnvVars replaces all {env:VAR_NAME} with the env var value.
func resolveEnvVars(s string) string {
	for {
		start := strings.Index(s, "{env:")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		val := os.Getenv(s[start+5 : end])
		s = s[:start] + val + s[end+1:]
	}
}

// resolveSHA replaces {sha:N} with the SHA truncated to N chars.
// Plain {sha} is handled by the simple replacement pass.
func resolveSHA(s string, sha string) string {
	for {
		start := strings.Index(s, "{sha:")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		width, err := strconv.Atoi(s[start+5 : end])
		if err != nil || width <= 0 {
			width = 7
		}
		s = s[:start] + truncate(sha, width) + s[end+1:]
	}
}
