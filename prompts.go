package fathom

import (
	"fmt"
	"strings"
)

// Prompt templates for the searchers. List and object arguments are rendered
// python-style because the templates ask for python literal replies, which
// ParseStringList and ParseIntList then decode.

const subQueryTemplate = `To answer this question more comprehensively, please break down the original question into up to four sub-questions. Return as list of str.
If this is a very simple question and no decomposition is necessary, then keep the only one original question in the python code list.

Original Question: %s


<EXAMPLE>
Example input:
"Explain deep learning"

Example output:
[
    "What is deep learning?",
    "What is the difference between deep learning and machine learning?",
    "What is the history of deep learning?"
]
</EXAMPLE>

Provide your response in a python code list of str format:
`

func subQueryPrompt(originalQuery string) string {
	return fmt.Sprintf(subQueryTemplate, originalQuery)
}

const rerankTemplate = `Based on the query questions and the retrieved chunk, to determine whether the chunk is helpful in answering any of the query question, you can only return "YES" or "NO", without any other information.

Query Questions: %s
Retrieved Chunk: %s

Is the chunk helpful in answering the any of the questions?
`

func rerankPrompt(queries []string, chunkText string) string {
	return fmt.Sprintf(rerankTemplate, pyList(queries), "<chunk>"+chunkText+"</chunk>")
}

const reflectTemplate = `Determine whether additional search queries are needed based on the original query, previous sub queries, and all retrieved document chunks. If further research is required, provide a Python list of up to 3 search queries. If no further research is required, return an empty list.

If the original query is to write a report, then you prefer to generate some further queries, instead return an empty list.

Original Query: %s

Previous Sub Queries: %s

Related Chunks:
%s

Respond exclusively in valid List of str format without any other text.`

func reflectPrompt(question string, subQueries []string, chunkStr string) string {
	return fmt.Sprintf(reflectTemplate, question, pyList(subQueries), chunkStr)
}

const summaryTemplate = `You are a AI content analysis expert, good at summarizing content. Please summarize a specific and detailed answer or report based on the previous queries and the retrieved document chunks.

Original Query: %s

Previous Sub Queries: %s

Related Chunks:
%s

`

func summaryPrompt(question string, subQueries []string, chunkStr string) string {
	return fmt.Sprintf(summaryTemplate, question, pyList(subQueries), chunkStr)
}

const naiveSummaryTemplate = `You are a AI content analysis expert, good at summarizing content. Please summarize a specific and detailed answer or report based on the previous queries and the retrieved document chunks.

Original Query: %s

Related Chunks:
%s
`

func naiveSummaryPrompt(query string, chunkStr string) string {
	return fmt.Sprintf(naiveSummaryTemplate, query, chunkStr)
}

const collectionRouteTemplate = `
I provide you with collection_name(s) and corresponding collection_description(s). Please select the collection names that may be related to the question and return a python list of str. If there is no collection related to the question, you can return an empty list.

"QUESTION": %s
"COLLECTION_INFO": %s

When you return, you can ONLY return a python list of str, WITHOUT any other additional content. Your selected collection name list is:
`

func collectionRoutePrompt(question string, infos []CollectionInfo) string {
	return fmt.Sprintf(collectionRouteTemplate, question, pyCollectionInfo(infos))
}

const agentRouteTemplate = `Given a list of agent indexes and corresponding descriptions, each agent has a specific function.
Given a query, select only one agent that best matches the agent handling the query, and return the index without any other information.

## Question
%s

## Agent Indexes and Descriptions
%s

Only return one agent index number that best matches the agent handling the query:
`

func agentRoutePrompt(query string, descriptions []string) string {
	lines := make([]string, len(descriptions))
	for i, d := range descriptions {
		lines[i] = fmt.Sprintf("[%d]: %s", i+1, d)
	}
	return fmt.Sprintf(agentRouteTemplate, query, strings.Join(lines, "\n"))
}

const followupTemplate = `You are using a search tool to answer the main query by iteratively searching the database. Given the following intermediate queries and answers, generate a new simple follow-up question that can help answer the main query. You may rephrase or decompose the main query when previous answers are not helpful. Ask simple follow-up questions only as the search tool may not understand complex questions.

## Previous intermediate queries and answers
%s

## Main query to answer
%s

Respond with a simple follow-up question that will help answer the main query, do not explain yourself or output anything else.
`

func followupPrompt(query string, intermediate []string) string {
	return fmt.Sprintf(followupTemplate, strings.Join(intermediate, "\n"), query)
}

const intermediateAnswerTemplate = `Given the following documents, generate an appropriate answer for the query. DO NOT hallucinate any information, only use the provided documents to generate the answer. Respond "No relevant information found" if the documents do not contain useful information.

## Documents
%s

## Query
%s

Respond with a concise answer only, do not explain yourself or output anything else.
`

func intermediateAnswerPrompt(docs string, subQuery string) string {
	return fmt.Sprintf(intermediateAnswerTemplate, docs, subQuery)
}

const supportedDocsTemplate = `Given the following documents, select the ones that are support the Q-A pair.

## Documents
%s

## Q-A Pair
### Question: %s
### Answer: %s

Respond with a python list of indices of the selected documents.
`

func supportedDocsPrompt(docs, query, answer string) string {
	return fmt.Sprintf(supportedDocsTemplate, docs, query, answer)
}

const sufficiencyTemplate = `Given the following intermediate queries and answers, judge whether you have enough information to answer the main query. If you believe you have enough information, respond with "Yes", otherwise respond with "No".

## Intermediate queries and answers
%s

## Main query
%s

Respond with "Yes" or "No" only, do not explain yourself or output anything else.
`

func sufficiencyPrompt(query string, intermediate []string) string {
	return fmt.Sprintf(sufficiencyTemplate, strings.Join(intermediate, "\n"), query)
}

const finalAnswerTemplate = `Given the following intermediate queries and answers, generate a final answer for the main query by combining relevant information. Note that intermediate answers are generated by an LLM and may not always be accurate.

## Documents
%s

## Intermediate queries and answers
%s

## Main query
%s

Respond with an appropriate answer only, do not explain yourself or output anything else.
`

func finalAnswerPrompt(query string, docs string, intermediate []string) string {
	return fmt.Sprintf(finalAnswerTemplate, docs, strings.Join(intermediate, "\n"), query)
}

// formatChunkTexts renders chunks as numbered <chunk_i> blocks for the
// reflection and summary prompts.
func formatChunkTexts(chunkTexts []string) string {
	var b strings.Builder
	for i, chunk := range chunkTexts {
		fmt.Fprintf(&b, "<chunk_%d>\n%s\n</chunk_%d>\n", i, chunk, i)
	}
	return b.String()
}

// formatDocuments renders results as numbered <Document i> blocks for the
// chain searcher's prompts. wider selects the sentence-window text.
func formatDocuments(results []RetrievalResult, wider bool) string {
	docs := make([]string, len(results))
	for i, r := range results {
		text := r.Text
		if wider {
			text = r.WiderText()
		}
		docs[i] = fmt.Sprintf("<Document %d>\n%s\n</Document %d>", i, text, i)
	}
	return strings.Join(docs, "\n")
}

// pyList renders strings as a python-style list literal.
func pyList(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(pyEscape(it))
		b.WriteByte('\'')
	}
	b.WriteByte(']')
	return b.String()
}

// pyCollectionInfo renders collection name/description pairs as a
// python-style list of dicts.
func pyCollectionInfo(infos []CollectionInfo) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, info := range infos {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "{'collection_name': '%s', 'collection_description': '%s'}",
			pyEscape(info.Name), pyEscape(info.Description))
	}
	b.WriteByte(']')
	return b.String()
}

func pyEscape(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
