/*
Package signature implements the fast detection path of the inspection
gateway: an ordered, immutable set of attack signatures and a stateless
engine that evaluates free text against them.

# Overview

A Signature pairs a case-insensitive regular expression with a category
(prompt_injection, jailbreak, data_exfiltration) and a severity. The
engine walks the set in declaration order and returns on the first match;
severities critical and high block, medium and low only flag. Confidence
is derived from severity through a fixed table and never aggregated
across rules.

# Statelessness

Evaluation is a pure function of (text, set). Go's regexp package keeps
no match cursor between calls, and the engine holds no per-call state, so
repeated evaluation of the same input always yields the same result.

# Loading

The built-in set mirrors the production signature table. A custom set can
be loaded from a YAML file at process start; loading replaces the whole
set, entries are never mutated at request time.
*/
package signature
