package ai

const ExtractPrompt = `
# Task Context
You are tasked with extracting **structured entity and relationship information** from one chapter of a novel. The result is merged with the other chapters into a single knowledge graph of the book, so names must be written the way the text writes them.

# Background Data
- **Chapter:** [%s]

## Text
%s

# Detailed Task Description & Rules
## Entity Extraction
1. Identify every character, place, item and organization that takes part in the events of the chapter.
2. For each entity, extract:
   - **name:** the name exactly as written in the text, in lowercase. Use the fullest form the chapter gives (e.g., "эдмон дантес" rather than "он").
   - **entity_type:** strictly one of: "персонаж", "место", "предмет", "организация".
   - **singular:** true if the entity is a single individual or object, false for groups (e.g., "матросы", "жандармы").
   - **description:** what the chapter tells about the entity: role, actions, state, relations to others.
3. Do not extract pronouns, abstract notions or feelings as entities.

## Relationship Extraction
1. For every pair of extracted entities that the text clearly connects, extract:
   - **entity_1:** name of the first entity, identical to its entity name.
   - **entity_2:** name of the second entity, identical to its entity name.
   - **relationship_type:** a short verb or predicate in Russian, lowercase snake_case (e.g., "любит", "арестовал", "заключён_в").
   - **description:** what exactly happened between the two, based strictly on the text.
2. Both endpoints must appear in the entity list.

# Examples
**Text:**
Вильфор приказал арестовать Дантеса прямо на свадьбе с Мерседес.

**Output:**
{
  "entities": [
    {"name": "вильфор", "entity_type": "персонаж", "singular": true, "description": "Помощник королевского прокурора, отдаёт приказ об аресте Дантеса."},
    {"name": "дантес", "entity_type": "персонаж", "singular": true, "description": "Жених Мерседес, арестован на собственной свадьбе."},
    {"name": "мерседес", "entity_type": "персонаж", "singular": true, "description": "Невеста Дантеса."}
  ],
  "relationships": [
    {"entity_1": "вильфор", "entity_2": "дантес", "relationship_type": "арестовал", "description": "Вильфор приказал арестовать Дантеса на свадьбе."},
    {"entity_1": "дантес", "entity_2": "мерседес", "relationship_type": "жених", "description": "Дантес собирался жениться на Мерседес."}
  ]
}

# Immediate Task Description or Request
Extract all entities and relationships from the chapter above.

# Output Formatting
Return a JSON object with the keys "entities" and "relationships". Descriptions are written in Russian.
`

const SummaryPrompt = `
# Task Context
You are an assistant that summarizes chapters of a novel.

# Background Data
## Chapter
%s

# Detailed Task Description & Rules
- Summarize the events of the chapter in chronological order.
- Name every character who acts in the chapter.
- Do not add anything that is not in the text.

# Output Formatting
- Respond in Russian.
- Plain text, at most 10 sentences.
`

const QueryEntitiesPrompt = `
# Task Context
You extract the entities a user asks about, so that they can be looked up in a knowledge graph of a novel.

# Background Data
User question: "%s"

# Detailed Task Description & Rules
- Return every character, place or item named in the question, written exactly as in the question.
- For each entity add the verbs or predicates of the question that refer to it.
- Do not resolve pronouns to names that are not in the question.
- If the question names no entity, return an empty list.

# Examples
User question: "Кто предал Дантеса?"

Output:
{
  "entities": [
    {"entity": "Дантеса", "relationship": ["предал"]}
  ]
}

# Output Formatting
Return a JSON object with the key "entities".
`

const CanonicalNamesPrompt = `
# Task Context
You are a helpful assistant specialized in identifying names that refer to the same character of a novel.

# Background Data
## Names
%s

# Detailed Task Description & Rules
- Group names that denote the same character: surnames, first names, titles, nicknames and assumed identities (e.g., "дантес", "эдмон", "граф монте-кристо", "аббат бузони").
- Choose the most popular and recognizable full name as the canonical name.
- Every alias is taken from the list above and written in lowercase.
- A name that has no other form forms a group of its own.
- Do not merge different members of one family (e.g., "морель" the father and "жюли морель" the daughter).

# Output Formatting
Return a JSON object with this structure:
{
  "groups": [
    {"canonical_name": "<chosen name>", "alias": ["<alias1>", "<alias2>"]}
  ]
}
`

const AnswerPrompt = `
# Task Context
You are a helpful assistant that answers questions about a novel using only the provided context taken from a knowledge graph of the book and the previous turns of the conversation.

# Background Data
## Context
%s

# Detailed Task Description & Rules
- Each context entry names the character it belongs to ("Действующее лицо") and what the book says about it ("Содержание").
- Answer only from the context and the conversation. Do not add facts that are not present there.
- If the context says that nothing was found, say that the book graph has no information on the question.
- If the context contains contradicting statements, present all of them.

# Output Formatting
- Respond in the same language as the question.
- Return only the direct answer.
`

const ConversationPrompt = `
# Task Context
You are a helpful assistant for readers of a novel. The knowledge graph of the book has not been built yet, so no grounded information is available.

# Detailed Task Description & Rules
- Continue the conversation naturally.
- If the user asks about the book, say that the book graph is not available yet and answer only what follows from the conversation itself.
- Do not invent facts about the book.

# Output Formatting
- Respond in the same language as the user.
- Keep the response short.
`

// NotFoundContext is the context handed to AnswerPrompt when the graph
// holds nothing about the question.
const NotFoundContext = "По запросу в графе книги ничего не найдено."

// FallbackAnswer is returned when no answer could be generated at all.
const FallbackAnswer = "Не удалось получить ответ. Попробуйте повторить вопрос позже."
