// Package memory provides per-user long-term conversational memory.
//
// Memories are stored as vectors and scoped by user ID: one user's records
// are never visible to another user.
//
// Architecture:
//   - Store: vector storage backend (chromem-go locally, pgvector for Postgres)
//   - Embedder: text-to-vector conversion (OpenAI-compatible API, ONNX, or mock)
//   - Manager: the adapter the rest of the system uses (add, search, list,
//     delete, delete-all, export)
//
// Integration with the conversation engine:
//   - RETRIEVE: search the user's memories before the model call when the
//     intent pipeline asks for it
//   - RECORD: write the user message and the assistant reply after the full
//     response is assembled, when the intent pipeline asks for it
package memory
