/*
Package dsl provides a fluent Go API for defining conversation flows.

It is an alternative to the YAML flow files read by package flow, useful when a
flow is assembled in code or when an existing flow needs small changes:

	b := dsl.New("shelter-hours").
		Initial("GREETING").
		Fallback("GENERAL_INFO").
		Error("ERROR_HANDLING").
		Terminal("FINAL_SUMMARY").
		DefaultTools("update_context", "generate_response")

	b.Add("GREETING").
		Kind(flow.KindGreeting).
		Entry("Hello! How can I help you today?").
		Go("GENERAL_INFO", "ERROR_HANDLING")

	b.Add("GENERAL_INFO").
		Prompt("Answer questions about shelter hours.").
		Go("FINAL_SUMMARY")

	def, err := b.Build()

Build validates the definition exactly like a parsed file, so the result can be
passed to intake.WithFlow directly.

To change a flow, start from it:

	def, _ := flow.Default()
	b := dsl.From(def)
	b.Add("GREETING").Entry("Welcome to Springfield Animal Control. How can I help?")
	custom, err := b.Build()
*/
package dsl
