package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/keithlinneman/reqchain/internal/cfg"
	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/graph"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/pipeline"
)

// publishGraph is best effort: a failed upload never blocks serving.
func publishGraph(ctx context.Context, L log.Logger, conf cfg.App, awsCfg *aws.Config, reg *chain.Registry) {
	pub, err := graph.NewPublisher(ctx, graph.PublisherOptions{
		Logger:    L,
		Bucket:    conf.GraphS3Bucket,
		Prefix:    conf.GraphS3Prefix,
		AWSConfig: awsCfg,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create graph publisher")
		return
	}
	if err := pub.Publish(ctx, graph.Export(reg, graph.Options{})); err != nil {
		L.Error(ctx, err, "failed to publish chain graph", "bucket", conf.GraphS3Bucket)
	}
}

// runPrintGraph builds the graph from the same features source the server
// would serve and prints it to w.
func runPrintGraph(ctx context.Context, L log.Logger, source cfg.FeatureSource, maxHops int, format string, w io.Writer) int {
	doc, err := source.FeaturesDoc(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load features", "source", source.String())
		return 1
	}
	features, err := cfg.ParseFeatures(doc)
	if err != nil {
		L.Error(ctx, err, "failed to parse features", "source", source.String())
		return 1
	}
	reg, err := pipeline.Build(ctx, features, pipeline.Options{Logger: L, MaxHops: maxHops})
	if err != nil {
		L.Error(ctx, err, "failed to build chain graph", "source", source.String())
		return 1
	}

	g := graph.Export(reg, graph.Options{IncludeExceptions: true})
	switch format {
	case "dot":
		fmt.Fprint(w, g.DOT())
	case "json":
		js, err := g.JSON()
		if err != nil {
			L.Error(ctx, err, "failed to render chain graph")
			return 1
		}
		fmt.Fprintln(w, string(js))
	default:
		fmt.Fprintf(os.Stderr, "unknown -print-graph format %q (want dot or json)\n", format)
		return 2
	}
	return 0
}
