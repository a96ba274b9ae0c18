// Package record provides the plain nested data form that every serializable
// object is turned into before it is stored or transmitted.
//
// This package contains value types and their text encoding only. All other
// internal packages import record; record imports nothing internal.
//
// Key design constraints:
//   - Value is sealed: Null, String, Int, Float, Bool, Array and Object only
//   - Floats always encode with a fraction or exponent so Parse can tell
//     them apart from integers
//   - A reference to a resource is the one-key object {"idResource": id}
//   - The outermost object of a serialized instance has exactly one key,
//     the registered type name of the instance
//   - Canonical text uses RFC 8785 key ordering and NFC-normalized strings
package record
