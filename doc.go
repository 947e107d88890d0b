// Package nestward provides an embedded insect-style visual homing engine for Go.
//
// Nestward models route-following navigation the way desert ants do it: an
// agent replays outbound routes through a sparse associative memory while
// learning, then finds its way back to the nest by scanning candidate
// headings and steering toward the most familiar view. No map, no odometry
// integration, no pose estimate beyond the simulated world itself.
//
// # Quick Start
//
//	ctx := context.Background()
//	agent, _ := nestward.NewAgent()
//	agent.SetWorld(encoder)            // vision.Encoder producing view vectors
//	agent.BindRoute(outbound)          // recorded feeder-to-nest route
//
//	traces, _ := agent.Learn(ctx)      // replay routes, depress memory weights
//	trace, outcome, _ := agent.Home(ctx)
//	if outcome == nestward.OutcomeReached {
//	    fmt.Println("back at the nest after", trace.Len(), "steps")
//	}
//
// # Walk Cursors
//
// Learn and Home drive a walk to its terminal state. For step-by-step
// control, use the cursor API:
//
//	walk, _ := agent.StartHoming(ctx)
//	for step, err := range walk.Steps(ctx) {
//	    if err != nil {
//	        break
//	    }
//	    fmt.Println(step.SampleIndex, step.Turn, step.Familiarity)
//	}
//
// Cancelling the context ends a walk with OutcomeCancelled; the partial
// trace stays available and no error is reported.
//
// # Durability
//
// Walks can stream their signal records to an append-only journal:
//
//	j, _ := journal.Open("walks.journal")
//	agent, _ := nestward.NewAgent(nestward.WithJournal(j))
//
// Every committed step is framed, checksummed and replayable; a torn tail
// from a crash is discarded on replay.
//
// # Key Features
//
//   - Sparse associative memory with winner-take-all coding
//   - Familiarity-fan steering with deterministic tie-breaking
//   - Resumable walk cursors with iter.Seq2 iteration
//   - Append-only checksummed walk journal
//   - Run archival to local disk, S3 or MinIO blob stores
//   - Pluggable metrics and structured logging
package nestward
