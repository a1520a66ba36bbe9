// Package jfr decodes Java Flight Recorder recordings.
//
// A recording is a sequence of self-framing chunks. Every chunk carries its own schema
// (the metadata record), its own constant pools and a run of event records whose layout
// the schema describes. Chunks share nothing, so they can be decoded in isolation.
//
// # Basic Usage
//
// Iterating chunks and their events in file order:
//
//	dec, err := jfr.Open("recording.jfr")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//
//	for chunk, err := range dec.Chunks(ctx) {
//	    if err != nil {
//	        var ce *jfr.ChunkError
//	        if errors.As(err, &ce) {
//	            continue // the chunk is lost, the next one is still readable
//	        }
//	        log.Fatal(err)
//	    }
//	    for rec, err := range chunk.Events(ctx) {
//	        if err != nil {
//	            break
//	        }
//	        fmt.Println(rec.Name(), rec.Timestamp)
//	    }
//	}
//
// Decoding chunk bodies on several goroutines, still delivered in file order:
//
//	dec, _ := jfr.NewDecoder(src, jfr.WithWorkers(8))
//	for chunk, err := range dec.ChunksConcurrent(ctx) {
//	    ...
//	}
//
// # Errors
//
// Framing failures (ErrInvalidMagic, ErrTruncated, ErrUnsupportedVersion and ErrCorrupt in a
// header) end the file because the next chunk cannot be located. Failures inside a chunk
// body are reported as *ChunkError and the decoder moves on to the next chunk using the
// declared chunk size. Unknown types and unresolved constants are collected as warnings
// on the chunk, see Chunk.Warnings.
//
// # Package Structure
//
// This package drives the lower level packages, which can also be used directly:
//   - section: chunk header layout and parsing
//   - metadata: schema tree and type registry
//   - cpool: constant pools
//   - event: event records
//   - value: decoded values
package jfr
