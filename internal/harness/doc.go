// Package harness runs conformance scenarios against the guarded runner.
//
// A scenario is a YAML file that pairs an inline dataset with a scripted
// engine response (links, a numerical failure, an engine error, a panic or a
// hang) and the outcome the runner must report for it:
//
//	name: duplicate_lags
//	description: Two lags of the same source collapse into one parent.
//	data: |
//	  temp,pressure
//	  1.0,2.0
//	  2.0,3.5
//	engine:
//	  links: [[], [[0, 1], [0, 2]]]
//	expect:
//	  outcome: success
//	  parents:
//	    temp: []
//	    pressure: [temp]
//
// Runs are deterministic: the clock advances one second per reading and
// run IDs are the scenario name, so the result document of every scenario
// can be compared against a golden file with RunWithGolden.
package harness
