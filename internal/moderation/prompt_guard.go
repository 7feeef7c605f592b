package moderation

import (
	"context"
	"regexp"
	"strings"
)

// GuardResult contains the result of a prompt injection scan.
type GuardResult struct {
	// Blocked is true if the message should NOT be sent to the LLM.
	Blocked bool
	// Score is a rough heuristic risk score (0.0 = safe, 1.0 = definitely injection).
	Score float64
	// Reasons lists the detection signals that fired.
	Reasons []string
}

type guardPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

// messages scoring at or above this are blocked outright.
const blockThreshold = 0.7

var directInjectionPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?|programming)`), "direct_injection:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "direct_injection:disregard_instructions", 0.9},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "direct_injection:forget_instructions", 0.9},
	{regexp.MustCompile(`(?i)new\s+role\s*:|new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "direct_injection:new_role", 0.9},
	{regexp.MustCompile(`(?i)override\s+(your\s+)?(system|instructions?|rules?|safety|guidelines?)`), "direct_injection:override", 0.8},
	{regexp.MustCompile(`(?i)(pretend|imagine|suppose|assume)\s+(that\s+)?(you\s+)?(are|have|were|don'?t\s+have)\s+(no\s+)?(rules?|restrictions?|limits?|boundaries|guidelines?|filters?|safety)`), "direct_injection:pretend_no_rules", 0.9},
	{regexp.MustCompile(`(?i)bypass\s+(your\s+)?(safety|filters?|restrictions?|guidelines?|rules?|content\s+policy)`), "direct_injection:bypass", 0.8},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|unrestricted\s*mode|god\s*mode`), "direct_injection:jailbreak_keyword", 0.9},
}

var exfiltrationPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)(reveal|show|display|print|output|repeat|tell\s+me|what\s+(is|are))\s+(your\s+)?(system\s+prompt|initial\s+prompt|hidden\s+prompt|system\s+message|original\s+prompt)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)repeat\s+(everything|all|the\s+text)\s+(above|before|from\s+the\s+start|from\s+the\s+beginning)`), "exfiltration:repeat_above", 0.7},
}

var contextManipulationPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)(end\s+of\s+)?(system|assistant)\s*(message|prompt|instructions?)\s*[\-=]{2,}`), "context_manipulation:fake_boundary", 0.8},
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), "context_manipulation:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`), "context_manipulation:role_markers", 0.7},
	{regexp.MustCompile(`(?i)the\s+real\s+(instructions?|task|prompt|conversation)\s+(is|starts?|begins?)`), "context_manipulation:real_instructions", 0.8},
}

var obfuscationPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)base64\s*(encode|decode|:)|\\x[0-9a-fA-F]{2}`), "obfuscation:encoding", 0.5},
	{regexp.MustCompile(`<\s*(script|iframe|object|embed)\b`), "obfuscation:html_injection", 0.6},
}

var allGuardPatterns = concatPatterns(directInjectionPatterns, exfiltrationPatterns, contextManipulationPatterns, obfuscationPatterns)

func concatPatterns(groups ...[]guardPattern) []guardPattern {
	var out []guardPattern
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// ScanForPromptInjection analyzes inbound user text for prompt injection attempts.
func ScanForPromptInjection(message string) GuardResult {
	if strings.TrimSpace(message) == "" {
		return GuardResult{}
	}

	var reasons []string
	maxWeight := 0.0
	for _, p := range allGuardPatterns {
		if p.re.MatchString(message) {
			reasons = append(reasons, p.reason)
			if p.weight > maxWeight {
				maxWeight = p.weight
			}
		}
	}

	// Multiple signals compound: +0.1 per additional signal, capped at 1.0.
	score := maxWeight
	if len(reasons) > 1 {
		score = maxWeight + float64(len(reasons)-1)*0.1
		if score > 1.0 {
			score = 1.0
		}
	}

	return GuardResult{
		Blocked: score >= blockThreshold,
		Score:   score,
		Reasons: reasons,
	}
}

// PromptGuard is a local Gate rejecting likely prompt injection attempts.
type PromptGuard struct{}

var _ Gate = PromptGuard{}

func (PromptGuard) Check(ctx context.Context, prompt string) (Verdict, error) {
	result := ScanForPromptInjection(prompt)
	if !result.Blocked {
		return Pass(), nil
	}
	return Reject("Your prompt was blocked: " + strings.Join(result.Reasons, ", ")), nil
}
