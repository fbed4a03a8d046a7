// Package progression defines the domain types of the ceiling engine.
//
// A Dimension is one independently tracked training axis. Its current and
// ceiling values are typed by the dimension's StepConfig: a label drawn from
// an ordered sequence, an integer magnitude that moves by a fixed increment,
// or one option out of a small regulated set. Values are parsed against the
// step configuration at every boundary, so a Dimension that passes Validate
// can never hold a value outside its value space.
//
// This package imports nothing internal. The policy, store, engine and
// detector packages all build on it.
package progression
