// Package normalisers converts raw input into domain records. Each
// subpackage handles one input format; interview is the Q:/A:
// transcript parser the pipeline ingests from.
package normalisers
