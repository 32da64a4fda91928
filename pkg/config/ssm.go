package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSM parameter paths
const (
	ssmMirrorBucketPath = "/probav/mirror/bucket"
	ssmMirrorPrefixPath = "/probav/mirror/prefix"
)

// ParameterGetter is the part of the SSM API used for discovery.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient creates an SSM client from the default AWS configuration.
func NewSSMClient(ctx context.Context, region string) (*ssm.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// DiscoverMirror reads the mirror location from SSM Parameter Store and
// returns it as s3://bucket[/prefix].
func DiscoverMirror(ctx context.Context, client ParameterGetter) (string, error) {
	bucket, err := getParameter(ctx, client, ssmMirrorBucketPath)
	if err != nil {
		return "", err
	}
	if bucket == "" {
		return "", fmt.Errorf("no SSM parameter %s", ssmMirrorBucketPath)
	}

	uri := "s3://" + strings.Trim(strings.TrimPrefix(bucket, "s3://"), "/")
	if prefix, err := getParameter(ctx, client, ssmMirrorPrefixPath); err == nil && prefix != "" {
		uri += "/" + strings.Trim(prefix, "/")
	}
	return uri, nil
}

func getParameter(ctx context.Context, client ParameterGetter, name string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read SSM parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", nil
	}
	return *out.Parameter.Value, nil
}
