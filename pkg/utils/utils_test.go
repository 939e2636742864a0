package utils_test

import (
	"github.com/sethvargo/go-envconfig"

	. "github.com/alphagov/paas-rstreams-metrics/pkg/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("utils", func() {
	Context("RemoveColon", func() {
		It("replaces colons with underscores", func() {
			Expect(RemoveColon("this:is:the:value")).To(Equal("this_is_the_value"))
			Expect(RemoveColon("this:is_the:value")).To(Equal("this_is_the_value"))
			Expect(RemoveColon("this:is-the:value")).To(Equal("this_is-the_value"))
		})

		It("leaves other separators alone", func() {
			Expect(RemoveColon("this+is+the+value")).To(Equal("this+is+the+value"))
			Expect(RemoveColon("this*is*the*value")).To(Equal("this*is*the*value"))
		})
	})

	Context("GetEnvValue", func() {
		It("returns the default when nothing is set", func() {
			l := WithMetricPrefix(envconfig.MapLookuper(map[string]string{}))
			Expect(GetEnvValue(l, "SOMEKEY", "default")).To(Equal("default"))
			Expect(GetEnvValue(l, MetricEnvPrefix+"SOMEKEY", "default")).To(Equal("default"))
		})

		It("prefers the plain key over the prefixed key", func() {
			l := WithMetricPrefix(envconfig.MapLookuper(map[string]string{
				"SOMEKEY":                   "value1",
				MetricEnvPrefix + "SOMEKEY": "value2",
			}))
			Expect(GetEnvValue(l, "SOMEKEY", "default")).To(Equal("value1"))
		})

		It("falls back to the prefixed key", func() {
			l := WithMetricPrefix(envconfig.MapLookuper(map[string]string{
				MetricEnvPrefix + "SOMEKEY": "value2",
			}))
			Expect(GetEnvValue(l, "SOMEKEY", "default")).To(Equal("value2"))
		})

		It("treats a key set to the empty string as set", func() {
			l := WithMetricPrefix(envconfig.MapLookuper(map[string]string{
				"SOMEKEY":                   "",
				MetricEnvPrefix + "SOMEKEY": "value2",
			}))
			Expect(GetEnvValue(l, "SOMEKEY", "default")).To(Equal(""))
		})
	})

	Context("FirstNonEmpty", func() {
		It("skips empty values", func() {
			l := envconfig.MapLookuper(map[string]string{"A": "", "B": "b", "C": "c"})
			Expect(FirstNonEmpty(l, "A", "B", "C")).To(Equal("b"))
			Expect(FirstNonEmpty(l, "D")).To(Equal(""))
		})
	})
})
