// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildconfig resolves the chain of small text manifests that
// describe one installed build.
//
// Resolution starts at .build.info, a delimited table whose header row
// names each column as "Name!TYPE:size". The delimiter is sniffed from
// the header: '|' for current clients, tab for some tooling exports,
// '!' for a legacy form without type suffixes. One row is selected per
// product. Its Build Key and CDN Key columns name two further files
// stored under Data/config/<k[0:2]>/<k[2:4]>/<k>, each a list of
// "key = value" lines:
//
//   - the build config, giving the root manifest content key and the
//     encoding table's content key and encoding key
//   - the CDN config, giving the archive names whose .index files the
//     CDN fallback consults
//
// [Resolve] runs the whole chain and returns an immutable
// [BuildConfig]. [ParseBuildInfo] and [ParseKeyValueConfig] expose the
// two text formats on their own.
package buildconfig
