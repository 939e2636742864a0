package helpers

import (
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

type FakeSecretsManagerAPI struct {
	secretsmanageriface.SecretsManagerAPI

	mu        sync.Mutex
	args      []*secretsmanager.GetSecretValueInput
	returnOut *secretsmanager.GetSecretValueOutput
	returnErr error
}

func (f *FakeSecretsManagerAPI) GetSecretValueWithContext(
	ctx aws.Context,
	input *secretsmanager.GetSecretValueInput,
	_ ...request.Option,
) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, input)
	return f.returnOut, f.returnErr
}

func (f *FakeSecretsManagerAPI) GetSecretValueWithContextReturns(out *secretsmanager.GetSecretValueOutput, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returnOut = out
	f.returnErr = err
}

func (f *FakeSecretsManagerAPI) GetSecretValueWithContextCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.args)
}

func (f *FakeSecretsManagerAPI) GetSecretValueWithContextArgsForCall(i int) *secretsmanager.GetSecretValueInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.args[i]
}

type FakeKMSAPI struct {
	kmsiface.KMSAPI

	DecryptWithContextStub func(*kms.DecryptInput) (*kms.DecryptOutput, error)

	mu   sync.Mutex
	args []*kms.DecryptInput
}

func (f *FakeKMSAPI) DecryptWithContext(
	ctx aws.Context,
	input *kms.DecryptInput,
	_ ...request.Option,
) (*kms.DecryptOutput, error) {
	f.mu.Lock()
	f.args = append(f.args, input)
	stub := f.DecryptWithContextStub
	f.mu.Unlock()

	if stub == nil {
		return &kms.DecryptOutput{}, nil
	}
	return stub(input)
}

func (f *FakeKMSAPI) DecryptWithContextCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.args)
}

func (f *FakeKMSAPI) DecryptWithContextArgsForCall(i int) *kms.DecryptInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.args[i]
}
