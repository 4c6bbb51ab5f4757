// Package fingerprint produces acoustic fingerprints for audio files.
//
// The [Fingerprinter] interface is the pipeline's only view of extraction. [Chromaprint]
// implements it by running chromaprint's fpcalc binary once per file, so decoder crashes stay
// in a child process and context cancellation kills the child.
//
// [Encode] and [Decode] convert a fingerprint to and from the BLOB stored in the cache.
package fingerprint
