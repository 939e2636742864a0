package emitter_test

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

	"github.com/alphagov/paas-rstreams-metrics/pkg/emitter"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func dimension(name, value string) *cloudwatch.Dimension {
	return &cloudwatch.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

var _ = Describe("tag normalizing", func() {
	tags := metrics.Tags{
		"service":  {"rstreams"},
		"bus":      nil,
		"app":      {"a:1", "a2"},
		"some:key": {"value"},
		"bot":      {"bot-id"},
	}

	It("builds one dimension per value without the service tag", func() {
		Expect(emitter.Dimensions(tags)).To(Equal([]*cloudwatch.Dimension{
			dimension("app", "a_1"),
			dimension("app", "a2"),
			dimension("bot", "bot-id"),
			dimension("some_key", "value"),
		}))
	})

	It("builds one key:value pair per value keeping the service tag", func() {
		Expect(emitter.TagPairs(tags)).To(Equal([]string{
			"app:a_1",
			"app:a2",
			"bot:bot-id",
			"service:rstreams",
			"some_key:value",
		}))
	})

	It("expands a K element tag into K entries in order", func() {
		pairs := emitter.TagPairs(metrics.Tags{"k": {"3", "1", "2"}})
		Expect(pairs).To(Equal([]string{"k:3", "k:1", "k:2"}))
	})

	It("handles empty tags", func() {
		Expect(emitter.Dimensions(nil)).To(BeEmpty())
		Expect(emitter.TagPairs(metrics.Tags{})).To(BeEmpty())
	})
})
