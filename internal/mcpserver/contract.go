package mcpserver

// MessageFormatContract describes the canonical message format that LLM
// consumers should follow when adding messages to conversations.
const MessageFormatContract = `# Ansuz Message Format Contract

Every message added to a conversation MUST follow these rules.

## Fields

- **role** (required): one of ` + "`user`" + `, ` + "`assistant`" + `, ` + "`system`" + `.
  Any other value is rejected.
- **content** (required): the message text. MUST be non-empty. Plain text
  or Markdown; UTF-8 encoded.
- **parent_id** (optional): UUID of an earlier message in the SAME
  conversation. Use it to branch a thread; omit it to continue the main
  thread.
- **metadata** (optional): flat string-to-string map for client
  annotations. Keys are lowercase snake_case.

## Rules

1. A conversation must exist before messages are added to it; create one
   with ` + "`create_conversation`" + ` first.
2. ` + "`parent_id`" + ` never points into another conversation.
3. System messages belong at the start of a thread; tools should not
   append them mid-conversation.
4. Editing a message replaces its content in place and merges metadata;
   it does not create a new branch.

## Example

` + "```" + `json
{
  "role": "user",
  "content": "Summarise the sample corpus for me.",
  "metadata": {"client": "cli"}
}
` + "```" + `
`
