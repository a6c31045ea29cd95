// Package oss uploads finished run artifacts to an Alibaba Cloud OSS bucket.
package oss

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"time"

	alioss "github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"go.uber.org/zap"

	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

// LinkExpiry is how long returned download links stay valid.
const LinkExpiry = 7 * 24 * time.Hour

type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyId     string
	AccessKeySecret string
	// Endpoint overrides the regional endpoint, e.g. for a test server.
	Endpoint string
}

type Publisher struct {
	client *alioss.Client
	bucket string
	prefix string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "oss bucket and region are required")
	}
	if cfg.AccessKeyId == "" || cfg.AccessKeySecret == "" {
		return nil, apperrors.ErrMissingCredentials
	}

	ossCfg := alioss.LoadDefaultConfig().
		WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.AccessKeySecret)).
		WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		ossCfg = ossCfg.WithEndpoint(cfg.Endpoint)
	}

	return &Publisher{
		client: alioss.NewClient(ossCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ObjectKey places name under prefix, using forward slashes whatever the
// local separator.
func ObjectKey(prefix string, parts ...string) string {
	elems := []string{strings.Trim(filepath.ToSlash(prefix), "/")}
	for _, p := range parts {
		elems = append(elems, strings.Trim(filepath.ToSlash(p), "/"))
	}
	return strings.TrimPrefix(path.Join(elems...), "/")
}

// Publish uploads localPath under key (relative to the configured prefix)
// and returns a time-limited download link.
func (p *Publisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	if localPath == "" {
		return "", errors.New("nothing to publish")
	}
	fullKey := ObjectKey(p.prefix, key)

	if _, err := p.client.PutObjectFromFile(ctx, &alioss.PutObjectRequest{
		Bucket: alioss.Ptr(p.bucket),
		Key:    alioss.Ptr(fullKey),
	}, localPath); err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeArtifactPublish, "upload artifact", fullKey, err)
	}

	link, err := p.client.Presign(ctx, &alioss.GetObjectRequest{
		Bucket: alioss.Ptr(p.bucket),
		Key:    alioss.Ptr(fullKey),
	}, alioss.PresignExpires(LinkExpiry))
	if err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeArtifactPublish, "sign download link", fullKey, err)
	}

	log.GetLogger().Info("[OSS] artifact published",
		zap.String("bucket", p.bucket), zap.String("key", fullKey), zap.String("local", localPath))
	return link.URL, nil
}
