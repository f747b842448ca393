// Package logging provides structured, context-aware logging for codesearch.
//
// Logger wraps Zap and adds:
//   - a Trace level (-2, below Debug)
//   - correlation fields pulled from the context (trace_id, request.id, repository.id)
//   - encoder-level redaction of credentials
//   - level-aware sampling (errors are never sampled)
//
// Typical use:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRepositoryID(ctx, repo.ID)
//	logger.Info(ctx, "index built", zap.Int("snippets", n))
//
// Components that only need a plain *zap.Logger receive logger.Underlying().
//
// Tests use NewTestLogger and its Assert helpers.
package logging
