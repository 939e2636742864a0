package environment

import (
	"regexp"
	"strings"
	"sync"

	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
)

var (
	envRegex        = regexp.MustCompile(`(?i)(dev|test|staging|stage|production|prod)`)
	appRegex        = regexp.MustCompile(`(?i)^(.*?)-(?:dev|test|staging|stage|production|prod)-`)
	botTagRegex     = regexp.MustCompile(`^(.*?):(.*)$`)
	leadingIDRegex  = regexp.MustCompile(`^(.+?)(?:[./\-_]|\b|$)`)
	workflowTagHead = "workflow:"
)

// parseBotTags reads a comma separated list of key:value pairs. Entries
// missing a key or a value are dropped; repeated keys accumulate in order.
func parseBotTags(raw string) metrics.Tags {
	tags := metrics.Tags{}
	if raw == "" {
		return tags
	}
	for _, entry := range strings.Split(raw, ",") {
		m := botTagRegex.FindStringSubmatch(entry)
		if m == nil || m[1] == "" || m[2] == "" {
			continue
		}
		tags[m[1]] = append(tags[m[1]], m[2])
	}
	return tags
}

// inferApp strips a stage suffix such as "-prod-" from a function name.
func inferApp(functionName string) string {
	m := appRegex.FindStringSubmatch(functionName)
	if m == nil {
		return ""
	}
	return m[1]
}

func matchEnvironment(value string) string {
	m := envRegex.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

func workflowFromTags(raw string) string {
	for _, entry := range strings.Split(raw, ",") {
		if strings.HasPrefix(entry, workflowTagHead) {
			return strings.Split(entry, ":")[1]
		}
	}
	return ""
}

// workflowShapes holds the compiled name/stage patterns for each
// environment seen so far.
type workflowShapes struct {
	mu    sync.Mutex
	byEnv map[string][]*regexp.Regexp
}

func newWorkflowShapes() *workflowShapes {
	return &workflowShapes{byEnv: map[string][]*regexp.Regexp{}}
}

func (w *workflowShapes) get(environment string) []*regexp.Regexp {
	w.mu.Lock()
	defer w.mu.Unlock()

	if shapes, ok := w.byEnv[environment]; ok {
		return shapes
	}
	env := regexp.QuoteMeta(environment)
	shapes := []*regexp.Regexp{
		regexp.MustCompile(`(?i)^([A-z_-]+?)[./\-_]*` + env),
		regexp.MustCompile(`(?i)^` + env + `[./\-_]*([A-z_-]+)`),
		regexp.MustCompile(`(?i)([A-z_-]+?)[./\-_]*` + env + `$`),
	}
	w.byEnv[environment] = shapes
	return shapes
}

// determineWorkflow returns the workflow name, or "" when none can be found.
func determineWorkflow(b bot, environment string, cache *workflowShapes) string {
	if workflow := workflowFromTags(b.tags); workflow != "" {
		return workflow
	}

	if environment != "" {
		shapes := cache.get(environment)
		for _, name := range []string{strings.ToLower(b.id), strings.ToLower(b.lambdaName)} {
			for _, shape := range shapes {
				if m := shape.FindStringSubmatch(name); m != nil && m[1] != "" {
					return m[1]
				}
			}
		}
	}

	if m := leadingIDRegex.FindStringSubmatch(b.id); m != nil && m[1] != "" {
		return m[1]
	}
	return b.id
}
