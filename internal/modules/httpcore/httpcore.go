// Package httpcore creates the chains every HTTP feature module extends.
//
//	http.entry      default jump(http.routing)    exception jump(http.exception)
//	http.routing    default jump(http.not-found)  exception jump(http.exception)
//	http.not-found  default jump(http.respond)    exception jump(http.exception)
//	http.exception  default jump(http.respond)    exception jump(http.failed)
//	http.respond    default consume               exception jump(http.failed)
//	http.failed     default consume               exception consume
//
// http.failed writes a pre-encoded 500, so a response that cannot be mapped
// or encoded never reaches the client as an empty success.
//
// Entry rejects paths with dot segments and collapses repeated slashes
// before any route is matched.
//
// It must be the first module added to a build so its chains exist before
// other modules register against them.
package httpcore

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metadata"
	"github.com/keithlinneman/reqchain/internal/module"
	"github.com/keithlinneman/reqchain/internal/modules/jsonbody"
	"github.com/keithlinneman/reqchain/internal/pathutil"
)

// ExposeErrorsKey is the build datum controlling whether unexpected error
// messages reach clients. Modules may set it during Init.
var ExposeErrorsKey = metadata.NewKey[bool]("httpcore.expose_errors")

type Module struct {
	exposeErrors bool
}

type Option func(*Module)

// WithExposeErrors puts internal error messages in 500 responses. Meant for
// development only.
func WithExposeErrors(v bool) Option {
	return func(m *Module) { m.exposeErrors = v }
}

func New(opts ...Option) *Module {
	m := &Module{}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetExposeErrors is used by configurators.
func (m *Module) SetExposeErrors(v bool) { m.exposeErrors = v }

func (m *Module) SupplyModulesIfNotAlreadyPresent() []module.Module {
	return []module.Module{jsonbody.New()}
}

func (m *Module) Init(md *metadata.MetaData) error {
	metadata.GetOrSetDefault(md, ExposeErrorsKey, func() bool { return m.exposeErrors })
	return nil
}

func (m *Module) Register(ext *chain.Extender) error {
	toException := chain.Jump{Target: httpchain.ExceptionChain}
	toRespond := chain.Jump{Target: httpchain.RespondChain}
	toFailed := chain.Jump{Target: httpchain.FailedChain}

	chains := []struct {
		name     chain.Name
		def, exc chain.Action
	}{
		{httpchain.EntryChain, chain.Jump{Target: httpchain.RoutingChain}, toException},
		{httpchain.RoutingChain, chain.Jump{Target: httpchain.NotFoundChain}, toException},
		{httpchain.NotFoundChain, toRespond, toException},
		{httpchain.ExceptionChain, toRespond, toFailed},
		{httpchain.RespondChain, chain.Consume{}, toFailed},
		{httpchain.FailedChain, chain.Consume{}, chain.Consume{}},
	}
	for _, c := range chains {
		if err := ext.CreateChain(c.name, c.def, c.exc); err != nil {
			return err
		}
	}

	// either a configurator flipped the field or a module set the datum
	expose, _ := chain.LookupMetaDatum(ext, ExposeErrorsKey)
	expose = expose || m.exposeErrors
	if err := chain.AddMetaDatum(ext, ExposeErrorsKey, expose); err != nil {
		return err
	}

	if err := ext.AppendProcessor(httpchain.EntryChain, chain.NamedFunc("check-path", checkPath)); err != nil {
		return err
	}
	if err := ext.AppendProcessor(httpchain.NotFoundChain, chain.NamedFunc("not-found", notFound)); err != nil {
		return err
	}
	if err := ext.AppendProcessor(httpchain.ExceptionChain, chain.Named("map-error", errorMapper{expose: expose})); err != nil {
		return err
	}
	return ext.AppendProcessor(httpchain.FailedChain, chain.NamedFunc("write-500", writeFailure))
}

func checkPath(_ context.Context, md *metadata.MetaData) error {
	p, err := metadata.Get(md, httpchain.PathKey)
	if err != nil {
		return err
	}
	clean, err := pathutil.Canonical(p)
	if err != nil {
		return httpchain.WrapError(err, http.StatusBadRequest, "invalid path")
	}
	metadata.Set(md, httpchain.PathKey, clean)
	return nil
}

func notFound(_ context.Context, md *metadata.MetaData) error {
	httpchain.Respond(md, http.StatusNotFound, errorBody(md, "not found"))
	return nil
}

// errorMapper turns the recorded processor error into a JSON error response.
type errorMapper struct {
	expose bool
}

func (e errorMapper) Process(ctx context.Context, md *metadata.MetaData) error {
	err, _ := metadata.Lookup(md, chain.ErrorKey)

	if he, ok := httpchain.AsError(err); ok {
		httpchain.Respond(md, he.Status, errorBody(md, he.Message))
		return nil
	}

	msg := http.StatusText(http.StatusInternalServerError)
	if e.expose && err != nil {
		msg = err.Error()
	}
	if err != nil {
		failedChain, _ := metadata.Lookup(md, chain.FailedChainKey)
		failedProc, _ := metadata.Lookup(md, chain.FailedProcessorKey)
		log.FromContext(ctx).Error(ctx, err, "unhandled processor error",
			"chain", failedChain,
			"processor", failedProc,
		)
	}
	httpchain.Respond(md, http.StatusInternalServerError, errorBody(md, msg))
	return nil
}

// writeFailure replaces whatever response was being built with a fixed 500.
// It cannot fail: the body is encoded here, not by a marshalling module.
func writeFailure(ctx context.Context, md *metadata.MetaData) error {
	err, _ := metadata.Lookup(md, chain.ErrorKey)
	failedChain, _ := metadata.Lookup(md, chain.FailedChainKey)
	failedProc, _ := metadata.Lookup(md, chain.FailedProcessorKey)
	log.FromContext(ctx).Error(ctx, err, "response could not be built",
		"chain", failedChain,
		"processor", failedProc,
	)

	body, encErr := json.Marshal(errorBody(md, http.StatusText(http.StatusInternalServerError)))
	if encErr != nil {
		body = []byte(`{"error":"Internal Server Error"}`)
	}
	httpchain.RespondBytes(md, http.StatusInternalServerError, "application/json; charset=utf-8", body)
	return nil
}

func errorBody(md *metadata.MetaData, msg string) httpchain.ErrorBody {
	id, _ := metadata.Lookup(md, httpchain.RequestIDKey)
	return httpchain.ErrorBody{Error: msg, RequestID: id}
}
