package emitter

import (
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
	"github.com/alphagov/paas-rstreams-metrics/pkg/utils"
)

const serviceTag = "service"

// Dimensions converts tags to CloudWatch dimensions, one per value. The
// service tag is dropped.
func Dimensions(tags metrics.Tags) []*cloudwatch.Dimension {
	dimensions := []*cloudwatch.Dimension{}
	eachTag(tags, func(key, value string) {
		if key == serviceTag {
			return
		}
		dimensions = append(dimensions, &cloudwatch.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	})
	return dimensions
}

// TagPairs converts tags to key:value strings, one per value.
func TagPairs(tags metrics.Tags) []string {
	pairs := []string{}
	eachTag(tags, func(key, value string) {
		pairs = append(pairs, key+":"+value)
	})
	return pairs
}

// eachTag visits every sanitized key/value in sorted key order, keeping the
// order of multi-valued tags.
func eachTag(tags metrics.Tags, visit func(key, value string)) {
	keys := make([]string, 0, len(tags))
	for key, values := range tags {
		if values != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		cleanKey := utils.RemoveColon(key)
		for _, value := range tags[key] {
			visit(cleanKey, utils.RemoveColon(value))
		}
	}
}
