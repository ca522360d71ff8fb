package injection

import "regexp"

// Categories group rules by the kind of manipulation they look for.
const (
	CategoryInstructionBypass = "instruction_bypass"
	CategoryRoleOverride      = "role_override"
	CategoryEncodingTrick     = "encoding_trick"
	CategoryOutputSteering    = "output_steering"
	CategoryDelimiterSpoof    = "delimiter_spoof"
	CategoryPromptLeak        = "prompt_leak"
	CategoryCommentDirective  = "comment_directive"
)

// Rule defines a prompt injection detection pattern.
type Rule struct {
	Name     string
	Regex    *regexp.Regexp
	Severity float64 // 0.0 to 1.0
	Category string
}

var ruleTable = []struct {
	name     string
	category string
	severity float64
	pattern  string
}{
	{"ignore_previous", CategoryInstructionBypass, 0.95, `(?i)ignore\s+(all\s+)?previous\s+instructions`},
	{"disregard_prior", CategoryInstructionBypass, 0.95, `(?i)disregard\s+(all\s+)?prior\s+(instructions|context|rules)`},
	{"new_instructions", CategoryInstructionBypass, 0.8, `(?i)(new|updated|revised)\s+instructions?\s*:`},

	{"jailbreak", CategoryRoleOverride, 0.9, `\bDAN\b|(?i:\b(do\s+anything\s+now|jailbreak|unrestricted\s+mode)\b)`},
	{"code_block_system", CategoryRoleOverride, 0.9, "(?i)```system"},
	{"system_prefix", CategoryRoleOverride, 0.85, `(?i)^\s*system\s*:\s*`},
	{"developer_mode", CategoryRoleOverride, 0.85, `(?i)(developer|debug|admin|root)\s+mode\s+(enabled|activated|on)`},
	{"you_are_now", CategoryRoleOverride, 0.7, `(?i)you\s+are\s+now\s+(a|an|the)\s+`},

	{"base64_instruction", CategoryEncodingTrick, 0.85, `(?i)(decode|execute|follow)\s+(the\s+)?base64`},

	{"response_prefix", CategoryOutputSteering, 0.75, `(?i)respond\s+with\s*:\s*(sure|absolutely|of course)`},

	// The prompt builder fences schema, request and SQL in <<<...>>> blocks.
	{"block_delimiter", CategoryDelimiterSpoof, 0.9, `<<<\s*(END\s+)?(SCHEMA|REQUEST|SQL|CANDIDATE SQL|PARTIAL SQL|MODEL OUTPUT)\s*>>>`},

	{"reveal_prompt", CategoryPromptLeak, 0.8, `(?i)(reveal|print|show|repeat)\s+(me\s+)?(your|the)\s+(system\s+prompt|instructions)`},

	// SQL comments addressed to the model rather than to a human reader.
	{"comment_directive", CategoryCommentDirective, 0.8, `(?i)(--|/\*)\s*(note\s+to\s+)?(assistant|ai|model|llm)\s*[:,]`},
}

// DefaultRules returns the built-in injection detection rules.
func DefaultRules() []Rule {
	rules := make([]Rule, len(ruleTable))
	for i, r := range ruleTable {
		rules[i] = Rule{
			Name:     r.name,
			Regex:    regexp.MustCompile(r.pattern),
			Severity: r.severity,
			Category: r.category,
		}
	}
	return rules
}
