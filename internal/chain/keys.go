package chain

import "github.com/keithlinneman/reqchain/internal/metadata"

// Keys written by the executor when a processor or matcher fails.
var (
	ErrorKey           = metadata.NewKey[error]("chain.error")
	FailedChainKey     = metadata.NewKey[Name]("chain.failed_chain")
	FailedProcessorKey = metadata.NewKey[string]("chain.failed_processor")
)
