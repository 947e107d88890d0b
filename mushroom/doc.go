// Package mushroom provides a mushroom body inspired familiarity network.
//
// A fixed random projection expands a sensory input vector onto a much
// larger code layer. Winner-take-all selection keeps only the most
// activated code units, and the familiarity output is the sum of the
// depressible weights of those active units. Learning depresses the
// weights of active units toward zero, so previously seen views produce
// LOWER outputs than novel ones.
package mushroom
