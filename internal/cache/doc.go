// Package cache keeps synthesized PCM so repeated utterances skip the
// synthesizer. An in-memory LRU level sits in front of a zstd-compressed disk
// level that survives restarts.
package cache
