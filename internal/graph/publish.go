package graph

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/xerrors"
)

// PutObjectAPI is the slice of the S3 client the publisher needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type PublisherOptions struct {
	Logger log.Logger

	// S3 location for snapshots: s3://{bucket}/{prefix}/chains.{dot,json}
	Bucket string
	Prefix string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config

	// Client overrides the S3 client built from AWSConfig
	Client PutObjectAPI
}

// Publisher uploads graph snapshots to S3 so a running deployment's wiring
// can be inspected without access to the admin port.
type Publisher struct {
	opts   PublisherOptions
	client PutObjectAPI
	logger log.Logger
}

func NewPublisher(ctx context.Context, opts PublisherOptions) (*Publisher, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = s3.NewFromConfig(awsCfg)
	}

	return &Publisher{opts: opts, client: client, logger: opts.Logger}, nil
}

func (p *Publisher) key(name string) string {
	if p.opts.Prefix != "" {
		return path.Join(p.opts.Prefix, name)
	}
	return name
}

// Publish uploads the DOT and JSON renderings of g.
func (p *Publisher) Publish(ctx context.Context, g *Graph) error {
	js, err := g.JSON()
	if err != nil {
		return err
	}
	objects := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"chains.dot", "text/vnd.graphviz", []byte(g.DOT())},
		{"chains.json", "application/json", js},
	}

	for _, o := range objects {
		key := p.key(o.name)
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.opts.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(o.body),
			ContentType: aws.String(o.contentType),
		})
		if err != nil {
			return xerrors.Wrapf(err, "put S3 object s3://%s/%s", p.opts.Bucket, key)
		}
		p.logger.Info(ctx, "published chain graph",
			"bucket", p.opts.Bucket,
			"key", key,
			"bytes", len(o.body),
		)
	}
	return nil
}
