// Package docconv converts documents between Markdown, HTML, PDF and
// OpenDocument text, and merges ordered document sets into one output.
//
// # Quick Start
//
// Describe a job, build it, and run it:
//
//	desc, err := config.LoadDescription("docconv.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	job, err := docconv.NewJob(desc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := docconv.New(docconv.WithTimeout(time.Minute))
//	defer engine.Close()
//
//	report, err := engine.Run(ctx, job)
//
// A job file looks like this:
//
//	input:
//	  format: markdown
//	  directory: docs
//	output:
//	  format: pdf
//	  directory: build
//	options:
//	  toc: true
//	combine:
//	  enabled: true
//	  output_file: manual.pdf
//	  metadata:
//	    title: User Manual
//	    date: auto
//
// # Format Graph
//
// Converters are edges of a directed graph whose nodes are formats. A job
// converting markdown to pdf follows the shortest path, markdown -> html ->
// pdf; intermediate files go to <output>/.docconv/work. DefaultRegistry
// registers markdown->html, html->pdf, html->markdown, html->odt and
// odt->html. Register custom converters on a Registry and pass it with
// WithRegistry:
//
//	reg := docconv.DefaultRegistry()
//	err := reg.Register("rst", docconv.HTML, myConverter)
//
// # Execution
//
// The planner turns a job into tasks: one per edge per document, plus a
// combine task and the chain from html to the target when combining. The
// executor runs independent tasks in parallel, up to the job's parallelism.
// A failed task fails only the tasks depending on it, so a partial run still
// produces every document it can. Cancelling the context lets running
// tasks finish and fails the rest with ErrCancelled.
//
// # Incremental Builds
//
// With incremental set, a document whose content and output are unchanged
// since the last successful run is skipped. Fingerprints are SHA-256 hashes
// of the content by default, or modification time and size with
// incremental_mode: mtime. State lives in <output>/.docconv/state.yaml.
//
// # Browser Requirements
//
// PDF output uses headless Chrome via go-rod. Rod downloads Chromium on
// first use unless ROD_BROWSER_BIN points to an installed browser. Set
// ROD_NO_SANDBOX=1 in containers.
package docconv
