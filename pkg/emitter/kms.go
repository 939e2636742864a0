package emitter

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
)

const encryptionContextKey = "LambdaFunctionName"

// KeyDecrypter decrypts a base64 KMS-encrypted Datadog API key.
type KeyDecrypter struct {
	client       kmsiface.KMSAPI
	functionName string
}

func NewKeyDecrypter(client kmsiface.KMSAPI, functionName string) *KeyDecrypter {
	return &KeyDecrypter{client: client, functionName: functionName}
}

// Decrypt tries without an encryption context first, then with the Lambda
// function name as context, matching keys encrypted from the Lambda console.
func (d *KeyDecrypter) Decrypt(ctx context.Context, encrypted string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decoding KMS API key: %w", err)
	}

	out, err := d.client.DecryptWithContext(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil && d.functionName != "" {
		out, err = d.client.DecryptWithContext(ctx, &kms.DecryptInput{
			CiphertextBlob: blob,
			EncryptionContext: map[string]*string{
				encryptionContextKey: aws.String(d.functionName),
			},
		})
	}
	if err != nil {
		return "", fmt.Errorf("decrypting KMS API key: %w", err)
	}
	return string(out.Plaintext), nil
}
