package guardrail

import "regexp"

// Family groups injection patterns for logging and metrics.
type Family string

const (
	FamilySystemPrompt Family = "system_prompt_manipulation"
	FamilyRole         Family = "role_manipulation"
	FamilyOverride     Family = "instruction_override"
	FamilyExfiltration Family = "data_exfiltration"
	FamilyEncoding     Family = "encoding_obfuscation"
	FamilyToolAbuse    Family = "tool_abuse"
)

type pattern struct {
	family Family
	expr   *regexp.Regexp
}

func p(family Family, expr string) pattern {
	return pattern{family: family, expr: regexp.MustCompile(expr)}
}

var defaultPatterns = []pattern{
	p(FamilySystemPrompt, `(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`),
	p(FamilySystemPrompt, `(?i)disregard\s+(all\s+)?(previous|above|prior)`),
	p(FamilySystemPrompt, `(?i)forget\s+(everything|all|your)\s+(above|previous|instructions?)`),
	p(FamilySystemPrompt, `(?i)new\s+instructions?:`),
	p(FamilySystemPrompt, `(?i)system\s*:\s*you\s+are`),
	p(FamilySystemPrompt, `(?i)assistant\s*:\s*`),
	p(FamilySystemPrompt, `(?i)\[system\]`),
	p(FamilySystemPrompt, `(?i)\[inst\]`),
	p(FamilySystemPrompt, `(?i)<\|system\|>`),
	p(FamilySystemPrompt, `(?i)<\|assistant\|>`),
	p(FamilySystemPrompt, `(?i)<<\s*SYS\s*>>`),

	p(FamilyRole, `(?i)pretend\s+(to\s+be|you'?re?\s+)`),
	p(FamilyRole, `(?i)act\s+as\s+(if\s+you'?re?|a\s+different)`),
	p(FamilyRole, `(?i)you\s+are\s+now\s+`),
	p(FamilyRole, `(?i)switch\s+(to\s+|your\s+)?(role|persona|character)`),
	p(FamilyRole, `(?i)roleplay\s+as`),

	p(FamilyOverride, `(?i)override\s+(your\s+)?(instructions?|programming|rules?)`),
	p(FamilyOverride, `(?i)bypass\s+(your\s+)?(restrictions?|limitations?|filters?)`),
	p(FamilyOverride, `(?i)jailbreak`),
	p(FamilyOverride, `(?i)dan\s+mode`),
	p(FamilyOverride, `(?i)developer\s+mode`),

	p(FamilyExfiltration, `(?i)reveal\s+(your\s+)?(system\s+)?(prompt|instructions?)`),
	p(FamilyExfiltration, `(?i)show\s+(me\s+)?(your\s+)?(system\s+)?(prompt|instructions?)`),
	p(FamilyExfiltration, `(?i)what\s+(are\s+)?(your\s+)?(system\s+)?(instructions?|prompt)`),
	p(FamilyExfiltration, `(?i)print\s+(your\s+)?(system\s+)?(prompt|instructions?)`),
	p(FamilyExfiltration, `(?i)output\s+(your\s+)?(initial|system)\s+(prompt|instructions?)`),

	p(FamilyEncoding, `(?i)base64\s*(decode|encode)`),
	p(FamilyEncoding, `(?i)rot13`),
	p(FamilyEncoding, `(?i)hex\s*(decode|encode)`),

	p(FamilyToolAbuse, `(?i)call\s+(any|all)\s+tools?`),
	p(FamilyToolAbuse, `(?i)execute\s+(arbitrary|any)\s+(code|command)`),
}

// Chat-template delimiters removed from otherwise allowed text.
var sanitizers = []struct {
	expr *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("```\\s*(system|assistant|user)\\s*"), "``` "},
	{regexp.MustCompile(`<\|(system|assistant|user|im_start|im_end)\|>`), ""},
	{regexp.MustCompile(`<<\s*(SYS|INST)\s*>>`), ""},
	{regexp.MustCompile(`\[/(INST|SYS)\]`), ""},
}
