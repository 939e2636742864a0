package config_test

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/secretsmanager"

	. "github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/helpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SecretSource", func() {
	var (
		fakeClient *helpers.FakeSecretsManagerAPI
		source     *SecretSource
	)

	BeforeEach(func() {
		fakeClient = &helpers.FakeSecretsManagerAPI{}
		source = NewSecretSource(fakeClient, "", logger)
	})

	It("reads the default secret", func() {
		fakeClient.GetSecretValueWithContextReturns(&secretsmanager.GetSecretValueOutput{
			SecretString: aws.String(`{"DataDog": {"apiKey": "abc"}}`),
		}, nil)

		configs, err := source.Fetch(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(configs.DataDog.APIKey).To(Equal("abc"))

		Expect(fakeClient.GetSecretValueWithContextCallCount()).To(Equal(1))
		Expect(aws.StringValue(fakeClient.GetSecretValueWithContextArgsForCall(0).SecretId)).To(Equal("GlobalRSFMetricConfigs"))
	})

	It("fails when the secret cannot be read", func() {
		fakeClient.GetSecretValueWithContextReturns(nil, errors.New("__CONTROLLED_ERROR__"))

		_, err := source.Fetch(context.Background())
		Expect(err).To(MatchError(ContainSubstring("__CONTROLLED_ERROR__")))
	})

	It("fails when the secret has no string", func() {
		fakeClient.GetSecretValueWithContextReturns(&secretsmanager.GetSecretValueOutput{}, nil)

		_, err := source.Fetch(context.Background())
		Expect(err).To(MatchError(ContainSubstring("no string value")))
	})

	It("fails when the secret is not JSON", func() {
		fakeClient.GetSecretValueWithContextReturns(&secretsmanager.GetSecretValueOutput{
			SecretString: aws.String(`nope`),
		}, nil)

		_, err := source.Fetch(context.Background())
		Expect(err).To(HaveOccurred())
	})
})
