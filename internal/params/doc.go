// Package params defines the option sets that control optimization runs.
//
// Every option is a named numeric Field with its own default and inclusive
// bounds. Construction validates each field on its own; no option constrains
// another, so callers must not assume e.g. that density control starts
// before it ends. Parameter files in CUE or YAML are overlaid on the
// defaults and validated the same way.
package params
