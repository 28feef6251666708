// Package secrets resolves configuration values that point at AWS SSM
// Parameter Store instead of carrying the secret inline.
//
// A value of the form "ssm:<parameter-name>" is fetched with decryption;
// any other value is returned unchanged.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const SSMPrefix = "ssm:"

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Resolver struct {
	client SSMAPI
}

// NewResolver accepts a nil client; resolving an ssm: reference then fails.
func NewResolver(client SSMAPI) *Resolver {
	return &Resolver{client: client}
}

// IsReference reports whether v names an SSM parameter.
func IsReference(v string) bool {
	return strings.HasPrefix(v, SSMPrefix)
}

// Resolve returns v, or the value of the parameter it references.
func (r *Resolver) Resolve(ctx context.Context, v string) (string, error) {
	if !IsReference(v) {
		return v, nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(v, SSMPrefix))
	if name == "" {
		return "", xerrors.New("empty SSM parameter name")
	}
	if r == nil || r.client == nil {
		return "", xerrors.Newf("SSM parameter %s referenced but no SSM client is configured", name)
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	val := strings.TrimSpace(*out.Parameter.Value)
	if val == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return val, nil
}

// ResolveAll resolves each pointer in place, stopping at the first error.
func (r *Resolver) ResolveAll(ctx context.Context, vals ...*string) error {
	for _, p := range vals {
		if p == nil {
			continue
		}
		v, err := r.Resolve(ctx, *p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// NeedsClient reports whether any of vals is an SSM reference.
func NeedsClient(vals ...string) bool {
	for _, v := range vals {
		if IsReference(v) {
			return true
		}
	}
	return false
}
