// Package safety implements the admission gatekeeper that screens every
// submitted task before it may enter an agent pipeline.
//
// Screening is deliberately lexical: literal substring sets, a length bound
// and a goal-verb check. This is cheap and auditable but it is pattern
// matching, not semantic analysis, and trivially rephrased tasks will pass.
// It is a first line of defense, not a guarantee.
package safety

import "fmt"

// RuleSetVersion identifies the canonical rule set. The source system
// shipped three inconsistent iterations of these rules; v1 is the single
// merged set used everywhere.
const RuleSetVersion = "v1"

// RuleSet holds the literal screening rules the gatekeeper evaluates.
// The coercive and destructive sets must stay disjoint so that every match
// attributes to exactly one category.
type RuleSet struct {
	Version string `yaml:"version"`

	// Coercive patterns signal urgency/override phrasing or exploit
	// vocabulary ("at all costs", "bypass", ...).
	Coercive []string `yaml:"coercive"`

	// Destructive patterns signal deletion/shutdown/force-kill vocabulary.
	Destructive []string `yaml:"destructive"`

	// Greetings are exact-match conversational inputs that are always
	// considered goal-aligned.
	Greetings []string `yaml:"greetings"`

	// GoalVerbs are the core-goal tokens; a task containing any of them is
	// considered aligned.
	GoalVerbs []string `yaml:"goalVerbs"`

	// MaxTaskRunes is the resource-abuse ceiling on task length.
	MaxTaskRunes int `yaml:"maxTaskRunes"`

	// GreetingMaxRunes is the short-and-conversational length threshold.
	GreetingMaxRunes int `yaml:"greetingMaxRunes"`
}

// DefaultRuleSet returns the built-in v1 rules.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Version: RuleSetVersion,
		Coercive: []string{
			"越快越好",
			"不惜一切代价",
			"忽略所有限制",
			"立即修复",
			"暴力破解",
			"漏洞利用",
			"绕过安全",
			"绕过防护",
			"绕过限制",
			"at all costs",
			"ignore all restrictions",
			"ignore previous instructions",
			"bypass security",
			"brute force",
			"exploit the vulnerability",
		},
		Destructive: []string{
			"删除文件",
			"格式化硬盘",
			"删除数据库",
			"关闭服务",
			"停止服务",
			"kill进程",
			"rm -rf",
			"drop table",
			"delete the database",
			"format the disk",
			"force kill",
			"shut down the server",
		},
		Greetings: []string{
			"你好",
			"hello",
			"hi",
			"测试",
		},
		GoalVerbs: []string{
			"优化",
			"改进",
			"重构",
			"修复",
			"创建",
			"生成",
			"分析",
			"研究",
			"开发",
			"设计",
			"optimize",
			"improve",
			"refactor",
			"fix",
			"create",
			"generate",
			"analyze",
			"research",
			"develop",
			"design",
		},
		MaxTaskRunes:     10000,
		GreetingMaxRunes: 5,
	}
}

// Validate checks structural soundness of a rule set before it is installed.
func (r RuleSet) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("rule set has no version")
	}
	if r.MaxTaskRunes <= 0 {
		return fmt.Errorf("maxTaskRunes must be positive")
	}
	if r.GreetingMaxRunes <= 0 {
		return fmt.Errorf("greetingMaxRunes must be positive")
	}
	if len(r.Coercive) == 0 && len(r.Destructive) == 0 {
		return fmt.Errorf("rule set has no screening patterns")
	}
	seen := make(map[string]bool, len(r.Coercive))
	for _, p := range r.Coercive {
		seen[p] = true
	}
	for _, p := range r.Destructive {
		if seen[p] {
			return fmt.Errorf("pattern %q appears in both coercive and destructive sets", p)
		}
	}
	return nil
}
