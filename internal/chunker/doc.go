// Package chunker splits file content into token-budgeted chunks for
// embedding and retrieval.
//
// There is one Strategy per content class, and Router picks among them by
// file extension:
//
//	r, err := chunker.NewRouter(tok, chunker.DefaultLimits(), logger)
//	chunks, err := r.Chunk(chunker.Request{
//	    Content:   src,
//	    FilePath:  "src/app.py",
//	    ProjectID: "proj",
//	    UserID:    "u1",
//	})
//
// # Strategies
//
//   - PlainText: recursive separator splitting (paragraph, line, sentence,
//     word) with a character-width fallback that overlaps consecutive pieces.
//   - Markdown: heading sections, each prefixed with the "# H1 > ## H2 > ### H3"
//     chain so a chunk never loses its ancestors. Oversized sections are
//     regrouped by paragraph.
//   - Code: class and function blocks located per language, with preamble,
//     interstitial and postamble text between them. Oversized blocks repeat
//     their signature and the trailing overlap lines in every continuation.
//     Files without recognisable blocks are cut into overlapping line windows.
//   - JSON: depth-first tree walk with $-rooted paths; malformed documents
//     are chunked exactly as plain text.
//   - YAML: top-level keys found by indentation.
//
// # Invariants
//
// Chunk indices are contiguous from zero. Every chunk fits its class budget
// unless it is an atomic unit that cannot be split further (a single line,
// a JSON leaf, a character-level window); such chunks are either structurally
// atomic or tagged isForceChunked. Content-shape problems never produce an
// error: they degrade to a coarser strategy. Only requests missing a file
// path, project id or user id are rejected.
//
// All strategies are safe for concurrent use; the pattern tables are built
// once at init and only read afterwards.
package chunker
